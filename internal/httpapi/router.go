package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterRoutes 注册全部查询与上传路由
func (r *Router) RegisterRoutes(h *Handler) {
	r.Handle("/health", requireMethod(http.MethodGet, h.GetHealth))
	r.Handle("/device/", requireMethod(http.MethodGet, h.GetDevice))
	r.Handle("/alerts/", requireMethod(http.MethodGet, h.GetAlerts))
	r.Handle("/vitals_history/", requireMethod(http.MethodGet, h.GetVitalsHistory))
	r.Handle("/upload", requireMethod(http.MethodPost, h.UploadImage))
	r.Handle("/process_audio", requireMethod(http.MethodPost, h.ProcessAudio))
}

func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(w, req)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
