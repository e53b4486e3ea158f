package oversign

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Middleware returns an http.Handler that requires a recorded approval
// for every mutating request before passing it to next. Safe methods
// pass straight through; blocked requests receive a 403 with a JSON
// body naming the recorded verdict.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		var opts []RequestOption
		if r.Method == http.MethodDelete {
			opts = append(opts, WithRisk(RiskHigh), WithReversible(false))
		}

		out, err := c.Propose(r.Context(), "http_request", map[string]any{
			"method": r.Method,
			"url":    requestURL(r),
		}, fmt.Sprintf("%s %s", r.Method, r.URL.Path), opts...)
		if err != nil {
			http.Error(w, "approval gate unavailable", http.StatusBadGateway)
			return
		}

		if !out.Proceed() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"blocked":    true,
				"request_id": out.RequestID,
				"status":     string(out.Status),
				"notes":      out.Notes,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// requestURL reconstructs the target for proxied and direct requests.
func requestURL(r *http.Request) string {
	if r.URL.Host != "" {
		return r.URL.String()
	}
	if r.Host != "" {
		return r.Host + r.URL.RequestURI()
	}
	return r.URL.RequestURI()
}
