package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/code-100-precent/FocusBuddy/pkg/errs"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCtx() (*gin.Engine, *httptest.ResponseRecorder) {
	r := gin.New()
	rr := httptest.NewRecorder()
	return r, rr
}

func readJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal body error: %v; body=%q", err, rr.Body.String())
	}
}

func TestSuccess(t *testing.T) {
	r, rr := newCtx()
	r.GET("/ok", func(c *gin.Context) {
		Success(c, "ok-msg", gin.H{"k": "v"})
	})
	req, _ := http.NewRequest(http.MethodGet, "/ok", nil)
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	var got map[string]any
	readJSON(t, rr, &got)

	// code 在 json.Unmarshal 后是 float64
	if got["code"] != float64(200) {
		t.Fatalf("code=%v, want 200", got["code"])
	}
	if got["msg"] != "ok-msg" {
		t.Fatalf("msg=%v, want ok-msg", got["msg"])
	}
	data, ok := got["data"].(map[string]any)
	if !ok || data["k"] != "v" {
		t.Fatalf("data=%v, want {k:v}", got["data"])
	}
	if _, ok := got["error"]; ok {
		t.Fatalf("success body should not carry an error code")
	}
}

func TestFail(t *testing.T) {
	r, rr := newCtx()
	r.GET("/fail", func(c *gin.Context) {
		Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "text is required")
	})
	req, _ := http.NewRequest(http.MethodGet, "/fail", nil)
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
	var got Response
	readJSON(t, rr, &got)
	if got.Code != 400 || got.Error != "INVALID_REQUEST" || got.Message != "text is required" {
		t.Fatalf("body=%+v", got)
	}
}

func TestResult_CustomHTTPStatus(t *testing.T) {
	r, rr := newCtx()
	r.GET("/result", func(c *gin.Context) {
		Result(c, http.StatusAccepted, 123, "custom", gin.H{"x": 1})
	})
	req, _ := http.NewRequest(http.MethodGet, "/result", nil)
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusAccepted)
	}
	var got map[string]any
	readJSON(t, rr, &got)
	if got["code"] != float64(123) || got["msg"] != "custom" {
		t.Fatalf("body=%v", got)
	}
}

func TestAbortWithStatusJSON_StopsNextHandlers(t *testing.T) {
	r, rr := newCtx()
	r.GET("/abort-json", func(c *gin.Context) {
		AbortWithStatusJSON(c, http.StatusTooManyRequests, errors.New("slow down"))
	}, func(c *gin.Context) {
		// 若未被中断，这里会设置一个 header，测试中应当观测不到
		c.Header("X-After", "should-not-exist")
	})
	req, _ := http.NewRequest(http.MethodGet, "/abort-json", nil)
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("X-After") != "" {
		t.Fatalf("Abort did not stop next handler")
	}
	var got Response
	readJSON(t, rr, &got)
	if got.Message != "slow down" || got.Error != "UNKNOWN_ERROR" {
		t.Fatalf("body=%+v", got)
	}
}

func TestError_MapsKinds(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"已有活动会话", errs.ErrAlreadyActive, http.StatusConflict, "ALREADY_ACTIVE"},
		{"会话未激活", errs.ErrNotActive, http.StatusConflict, "NOT_ACTIVE"},
		{"没有活动会话", fmt.Errorf("respond: %w", errs.ErrNoActiveSession), http.StatusNotFound, "NO_ACTIVE_SESSION"},
		{"采集失败", errs.CaptureFailure(errors.New("no display")), http.StatusBadGateway, "CAPTURE_FAILURE"},
		{"持久化失败", errs.PersistenceFailure(errs.SeverityFatal, errors.New("disk full")), http.StatusInternalServerError, "PERSISTENCE_FAILURE"},
		{"普通错误", errors.New("boom"), http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, rr := newCtx()
			r.GET("/err", func(c *gin.Context) { Error(c, tc.err) })
			req, _ := http.NewRequest(http.MethodGet, "/err", nil)
			r.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("status=%d, want %d", rr.Code, tc.status)
			}
			var got Response
			readJSON(t, rr, &got)
			if got.Error != tc.code || got.Code != tc.status {
				t.Fatalf("body=%+v, want code %s", got, tc.code)
			}
		})
	}
}
