package integrity

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashText возвращает lowercase hex SHA-256 от UTF-8 представления текста.
// Клиенты считают тот же дайджест на своей стороне.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Validate сверяет заявленный клиентом хэш с фактическим.
// Пустой claimedHash — валиден: проверка целостности опциональна,
// старые версии клиентов поле не шлют. Сравнение — строгое строковое,
// обе стороны обязаны слать lowercase hex.
func Validate(text, claimedHash string) bool {
	if claimedHash == "" {
		return true
	}
	return HashText(text) == claimedHash
}
