package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Version — дискриминатор контракта, по нему клиенты ветвятся между
// поколениями API. На проводе сериализуется как contract_version.
const Version = "v1"

// Envelope — единая обертка ответов API. Success выводится исключительно
// из статуса (< 400); data и error никогда не заполнены одновременно.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp string      `json:"timestamp"`
	Version   string      `json:"contract_version"`
}

// Build собирает конверт. На успехе кладется data, на ошибке — errMsg;
// timestamp ставится в момент генерации.
func Build(status int, requestID string, data interface{}, errMsg string) Envelope {
	e := Envelope{
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}
	if status < 400 {
		e.Success = true
		e.Data = data
	} else {
		e.Error = errMsg
	}
	return e
}

// ErrTooLarge возвращается size guard'ом, когда сериализованный ответ
// превышает потолок. Вызывающий конвертирует его в 500 до передачи.
var ErrTooLarge = errors.New("serialized response exceeds size limit")

// EncodeGuarded сериализует payload и отклоняет его ДО отправки, если
// размер превышает потолок — нижележащие транспорты имеют жесткие лимиты
// на размер тела.
func EncodeGuarded(payload interface{}, maxBytes int) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}
	if len(raw) > maxBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(raw), maxBytes)
	}
	return raw, nil
}
