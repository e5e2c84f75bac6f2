package domain

// ToneRequest — тело POST /v1/tone, как его присылают клиенты
// (клавиатура iOS и Flutter-приложение). Старые версии клиентов не шлют
// text_sha256 и client_seq — оба поля опциональны.
type ToneRequest struct {
	Text            string `json:"text"`
	TextSHA256      string `json:"text_sha256,omitempty"` // lowercase hex SHA-256 от Text
	ClientSeq       int64  `json:"client_seq,omitempty"`  // монотонный счетчик клиента
	Context         string `json:"context,omitempty"`     // conflict, repair, boundary...
	AttachmentStyle string `json:"attachmentStyle,omitempty"`
	UserID          string `json:"userId,omitempty"` // альтернативно — заголовок X-User-Id
}

// AnonymousUser подставляется, когда клиент не представился
const AnonymousUser = "anonymous"

// ResolveUserID выбирает идентификатор пользователя.
// Тело имеет приоритет над заголовком: заголовок существует для клиентов,
// которые не могут дописать поле в payload.
func (r *ToneRequest) ResolveUserID(headerValue string) string {
	if r.UserID != "" {
		return r.UserID
	}
	if headerValue != "" {
		return headerValue
	}
	return AnonymousUser
}

// AnalyzeResult — ответ внешнего inference-сервиса.
// Data прозрачно проксируется клиенту без переупаковки (legacy-контракт).
type AnalyzeResult struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
