package registry

import "sync"

// Handler — чистая функция действия: payload-мапа на входе, result-мапа
// на выходе. Детерминированность на одном payload — обязанность автора
// хендлера, ядро ее не проверяет (но replay-семантика без нее бессмысленна).
type Handler func(payload map[string]interface{}) (map[string]interface{}, error)

// Registry — явный реестр действий. Конструируется один раз при старте
// и передается в Engine по ссылке; никакой глобальной таблицы процесса.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Get возвращает хендлер и признак его наличия
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// RegisterDemo добавляет демо-действия echo и add — обычные регистрации
// через общий интерфейс, не часть ядра
func RegisterDemo(r *Registry) {
	r.Register("echo", func(payload map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"echo": payload}, nil
	})

	r.Register("add", func(payload map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"sum": toFloat(payload["a"]) + toFloat(payload["b"])}, nil
	})
}

// JSON-числа приходят как float64; остальное считаем нулем
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
