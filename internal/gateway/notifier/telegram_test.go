package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTelegram(t *testing.T, handler http.HandlerFunc) *Telegram {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tg := NewTelegram("tok-42", "chat-7")
	tg.client.SetBaseURL(srv.URL)
	return tg
}

func TestSendTextPostsToBotAPI(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(apiResponse{OK: true})
	})

	require.NoError(t, tg.SendText("📈 开仓信号"))
	assert.Equal(t, "/bottok-42/sendMessage", gotPath)
	assert.Equal(t, "chat-7", gotBody["chat_id"])
	assert.Equal(t, "📈 开仓信号", gotBody["text"])
	assert.Equal(t, "Markdown", gotBody["parse_mode"])
}

func TestSendTextTruncatesLongMessage(t *testing.T) {
	var gotText string
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText = body["text"]
		_ = json.NewEncoder(w).Encode(apiResponse{OK: true})
	})

	require.NoError(t, tg.SendText(strings.Repeat("x", maxMessageLen+500)))
	assert.Len(t, gotText, maxMessageLen+3)
	assert.True(t, strings.HasSuffix(gotText, "..."))
}

func TestSendTextSurfacesAPIRejection(t *testing.T) {
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(apiResponse{OK: false, Description: "chat not found"})
	})

	err := tg.SendText("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSendBlockWrapsLinesInCodeFence(t *testing.T) {
	var gotText string
	tg := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText = body["text"]
		_ = json.NewEncoder(w).Encode(apiResponse{OK: true})
	})

	require.NoError(t, tg.SendBlock("⚠️ 机器人故障", "robot  : rb-1", "reason : ```bad```"))
	assert.True(t, strings.HasPrefix(gotText, "⚠️ 机器人故障\n```\n"))
	assert.Contains(t, gotText, "robot  : rb-1\n")
	assert.Contains(t, gotText, "'''bad'''", "正文里的代码围栏应被替换")
	assert.True(t, strings.HasSuffix(gotText, "```"))
}
