package chatpersist

import "encoding/json"

// ChatID extracts the message id from a chat envelope.
func ChatID(data []byte) (string, bool) {
	var env struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Data.ID == "" {
		return "", false
	}
	return env.Data.ID, true
}
