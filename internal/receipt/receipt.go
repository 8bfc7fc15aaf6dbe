package receipt

import (
	"crypto/sha256"
	"encoding/hex"
)

// Квитанция — дайджест, связывающий id исполнения с каноническим текстом
// результата. Секретов нет: квитанция доказывает целостность (результат
// не подменили постфактум), а не авторство. Проверить может любая сторона,
// у которой есть id, результат и сама квитанция.

// Issue выпускает квитанцию: SHA-256 hex от "{exec_id}:{canonical_result}"
func Issue(execID, canonicalResult string) string {
	sum := sha256.Sum256([]byte(execID + ":" + canonicalResult))
	return hex.EncodeToString(sum[:])
}

// Verify пересчитывает квитанцию и сравнивает с предъявленной
func Verify(execID, canonicalResult, receipt string) bool {
	return Issue(execID, canonicalResult) == receipt
}
