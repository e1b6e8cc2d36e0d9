package validation

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

var mp4Header = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom\x00\x00\x00\x08free")

func uploadRequest(t *testing.T, content []byte, caption string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if content != nil {
		fw, err := w.CreateFormFile("video", "clip.mp4")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("caption_text", caption))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(UploadMiddleware(Config{MaxCaptionChars: 20}))
	app.Post("/upload", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"media_type": MediaType(c)})
	})
	return app
}

func decode(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

func TestUploadMiddlewareAcceptsVideo(t *testing.T) {
	resp, err := newApp().Test(uploadRequest(t, mp4Header, "caption"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "video/mp4", decode(t, resp.Body)["media_type"])
}

func TestUploadMiddlewareRejectsNonMedia(t *testing.T) {
	resp, err := newApp().Test(uploadRequest(t, []byte("just some text, not a video"), ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
	require.True(t, strings.HasPrefix(decode(t, resp.Body)["error"], "Unsupported media type: text/plain"))
}

func TestUploadMiddlewareRejectsLongCaption(t *testing.T) {
	resp, err := newApp().Test(uploadRequest(t, mp4Header, strings.Repeat("a", 21)))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUploadMiddlewareLeavesMissingFileToHandler(t *testing.T) {
	resp, err := newApp().Test(uploadRequest(t, nil, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "", decode(t, resp.Body)["media_type"])
}

func TestUploadMiddlewareRequiresMultipart(t *testing.T) {
	req := httptest.NewRequest("POST", "/upload", strings.NewReader(`{"video":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := newApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
}
