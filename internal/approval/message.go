package approval

import "github.com/xela07ax/openexec-gateway/internal/domain"

/*
Конструкция подписываемого сообщения — замороженный контракт между шлюзом
и authority. Любое отклонение в порядке или разделителях делает все валидные
артефакты непроверяемыми, поэтому обе стороны (валидация и выпуск) используют
одни и те же функции из этого файла.
*/

// Ed25519Message — сырая конкатенация полей без разделителей (историческая
// схема v1 с явным expires_at).
func Ed25519Message(a *domain.ApprovalArtifact) []byte {
	return []byte(a.ApprovalID + a.TenantID + a.ActionHash + a.IssuedAt + a.ExpiresAt)
}

// HMACMessage — строка с двоеточиями (схема v2 с ограничением возраста).
// Порядок полей отличается от v1 и тоже заморожен.
func HMACMessage(a *domain.ApprovalArtifact) []byte {
	return []byte(a.ApprovalID + ":" + a.ActionHash + ":" + a.TenantID + ":" + a.IssuedAt)
}
