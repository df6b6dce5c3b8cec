package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/cortexrouter/semantic-proxy/internal/logging"
	"github.com/cortexrouter/semantic-proxy/internal/metrics"
	"github.com/cortexrouter/semantic-proxy/internal/routerconfig"
)

// forward implements spec §4.5 steps 7-10 via a director-based
// httputil.ReverseProxy: rewrite the request to the resolved Model's
// endpoint, overwrite Host, and stream (or buffer) the response back.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, target routerconfig.Model, start time.Time) {
	targetURL, err := url.Parse(target.Endpoint)
	if err != nil {
		logging.UpstreamError(s.logger, err)
		s.respondUpstreamFailure(w, r, start, target.Name)

		return
	}

	rp := &httputil.ReverseProxy{
		Transport: s.httpClient.Transport,
		Director: func(req *http.Request) {
			req.URL.Scheme = targetURL.Scheme
			req.URL.Host = targetURL.Host
			req.Host = targetURL.Host
			req.Header.Set("Host", targetURL.Host)
		},
		ModifyResponse: func(resp *http.Response) error {
			duration := time.Since(start).Seconds()
			logging.UpstreamStatus(s.logger, resp.StatusCode, duration)
			metrics.UpstreamDuration.WithLabelValues(target.Name).Observe(duration)
			metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(resp.StatusCode)).Inc()

			if s.cfg.BufferUpstream {
				buffered, err := io.ReadAll(resp.Body)
				if err != nil {
					return err
				}

				resp.Body.Close()
				resp.Body = io.NopCloser(bytes.NewReader(buffered))
				resp.ContentLength = int64(len(buffered))
				resp.Header.Set("Content-Length", strconv.Itoa(len(buffered)))
			}

			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logging.UpstreamError(s.logger, err)
			s.respondUpstreamFailure(w, r, start, target.Name)
		},
	}

	// FlushInterval < 0 flushes every chunk immediately, matching the
	// "stream both directions" reimplementation spec §9 asks for;
	// BufferUpstream's ModifyResponse hook above overrides this per
	// response when buffering is requested instead.
	rp.FlushInterval = -1

	rp.ServeHTTP(w, r)
}
