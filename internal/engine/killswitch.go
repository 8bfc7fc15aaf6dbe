package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	killSwitchSet     = "openexec:actions:disabled_set"
	killSwitchChannel = "openexec:actions:killswitch"
)

// KillSwitchManager позволяет оперативно отключить отдельное действие
// без рестарта шлюза. Состояние живет в Redis (разделяется всеми
// инстансами), локальная мапа служит L1-кэшем и синхронизируется
// через Pub/Sub.
type KillSwitchManager struct {
	mu       sync.RWMutex
	disabled map[string]struct{}
	rdb      *redis.Client
	logger   *zap.Logger
}

func NewKillSwitchManager(rdb *redis.Client, logger *zap.Logger) *KillSwitchManager {
	return &KillSwitchManager{
		disabled: make(map[string]struct{}),
		rdb:      rdb,
		logger:   logger.Named("killswitch"),
	}
}

// Init загружает текущее состояние блокировок при старте сервиса
func (m *KillSwitchManager) Init(ctx context.Context) error {
	actions, err := m.rdb.SMembers(ctx, killSwitchSet).Result()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.disabled = make(map[string]struct{}, len(actions))
	for _, name := range actions {
		m.disabled[name] = struct{}{}
	}
	m.mu.Unlock()
	return nil
}

// IsDisabled — горячая проверка в Hot Path, только чтение из RAM
func (m *KillSwitchManager) IsDisabled(action string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.disabled[action]
	return ok
}

// Disable блокирует действие во всех инстансах шлюза
func (m *KillSwitchManager) Disable(ctx context.Context, action string) error {
	if err := m.rdb.SAdd(ctx, killSwitchSet, action).Err(); err != nil {
		return err
	}
	return m.rdb.Publish(ctx, killSwitchChannel, action+":on").Err()
}

// Enable снимает блокировку
func (m *KillSwitchManager) Enable(ctx context.Context, action string) error {
	if err := m.rdb.SRem(ctx, killSwitchSet, action).Err(); err != nil {
		return err
	}
	return m.rdb.Publish(ctx, killSwitchChannel, action+":off").Err()
}

func (m *KillSwitchManager) apply(action string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.disabled[action] = struct{}{}
	} else {
		delete(m.disabled, action)
	}
}

// StartListener — "живучая" подписка на сигналы: переподключение с
// повторной синхронизацией состояния при каждом успешном коннекте.
func (m *KillSwitchManager) StartListener(ctx context.Context) {
	for {
		pubsub := m.rdb.Subscribe(ctx, killSwitchChannel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			m.logger.Error("failed to subscribe", zap.String("chan", killSwitchChannel), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if err := m.Init(ctx); err != nil {
			m.logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				// Разбор формата "action:on|off"
				idx := strings.LastIndex(msg.Payload, ":")
				if idx <= 0 {
					m.logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}
				action := msg.Payload[:idx]
				state := msg.Payload[idx+1:]

				m.apply(action, state == "on" || state == "true")
				m.logger.Info("kill-switch signal applied",
					zap.String("action", action),
					zap.String("state", state),
				)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
