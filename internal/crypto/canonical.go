package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

/*
Файл canonical.go реализует каноническое хеширование структурированных данных.

Дайджест связывает артефакт одобрения с точной парой action+payload:
две семантически равные мапы с разным порядком вставки ключей обязаны
давать одинаковый хеш. Мы опираемся на то, что encoding/json сериализует
ключи map в байтовом лексикографическом порядке без лишних пробелов —
это и есть каноническая форма (рекурсивно для вложенных структур).
*/

// Canonicalize возвращает каноническую сериализацию значения:
// компактный JSON с отсортированными ключами, UTF-8.
func Canonicalize(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return b, nil
}

// CanonicalDigest считает SHA-256 hex-дайджест канонической формы значения.
// Строки хешируются как есть, без JSON-кавычек — формат совместим
// с внешним центром выдачи одобрений.
func CanonicalDigest(v interface{}) (string, error) {
	var data []byte
	switch s := v.(type) {
	case string:
		data = []byte(s)
	case []byte:
		data = s
	default:
		b, err := Canonicalize(v)
		if err != nil {
			return "", err
		}
		data = b
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashActionRequest — дайджест пары {action, payload}, по которому
// артефакт привязывается к запросу. Порядок ключей фиксирован
// канонической сериализацией.
func HashActionRequest(action string, payload map[string]interface{}) (string, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return CanonicalDigest(map[string]interface{}{
		"action":  action,
		"payload": payload,
	})
}
