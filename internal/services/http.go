package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fireflyresponse/perimeter/internal/lib/export"
	"github.com/fireflyresponse/perimeter/internal/lib/perimeter"
	"github.com/fireflyresponse/perimeter/internal/logging"
)

// EstimateResponse is the body of GET /api/v1/estimate
type EstimateResponse struct {
	Estimate perimeter.Estimate `json:"estimate"`
	Stale    bool               `json:"stale"`
	Expired  bool               `json:"expired"`
	CachedAt time.Time          `json:"cached_at"`
	Polyline string             `json:"polyline,omitempty"`
	ServedAt time.Time          `json:"served_at"`
}

// NewHTTPHandler serves the latest estimate, its exports and the metrics
// endpoint.
func NewHTTPHandler(svc *EstimatorService, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /api/v1/estimate", estimateHandler(svc))
	mux.HandleFunc("GET /api/v1/estimate.kml", kmlHandler(svc))
	mux.HandleFunc("GET /api/v1/estimate.geojson", geoJSONHandler(svc))
	mux.HandleFunc("GET /{$}", homepageHandler)
	return mux
}

func estimateHandler(svc *EstimatorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, ok := latestOrError(w, r, svc)
		if !ok {
			return
		}

		resp := EstimateResponse{
			Estimate: latest.Estimate,
			Stale:    latest.Stale,
			Expired:  latest.Expired,
			CachedAt: latest.CachedAt,
			ServedAt: time.Now().UTC(),
		}
		if encoded, err := export.EncodePath(latest.Estimate); err == nil {
			resp.Polyline = encoded
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logging.Errorw(r.Context(), "Failed to write estimate", "error", err)
		}
	}
}

func kmlHandler(svc *EstimatorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, ok := latestOrError(w, r, svc)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
		if err := export.WriteKML(w, latest.Estimate); err != nil {
			logging.Errorw(r.Context(), "Failed to write KML", "error", err)
		}
	}
}

func geoJSONHandler(svc *EstimatorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, ok := latestOrError(w, r, svc)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(export.FeatureCollection(latest.Estimate)); err != nil {
			logging.Errorw(r.Context(), "Failed to write GeoJSON", "error", err)
		}
	}
}

// latestOrError writes an error response when no estimate can be served.
// Stale estimates carry Warning 110 and expired ones also carry Warning 111.
func latestOrError(w http.ResponseWriter, r *http.Request, svc *EstimatorService) (CachedEstimate, bool) {
	latest, found, err := svc.Latest()
	if err != nil {
		logging.Errorw(r.Context(), "Failed to read cached estimate", "error", err)
		http.Error(w, "failed to read estimate", http.StatusInternalServerError)
		return CachedEstimate{}, false
	}
	if !found {
		http.Error(w, "no estimate available yet", http.StatusNotFound)
		return CachedEstimate{}, false
	}
	if latest.Stale {
		w.Header().Add("Warning", `110 - "Response is Stale"`)
	}
	if latest.Expired {
		w.Header().Add("Warning", `111 - "Revalidation Failed"`)
	}
	return latest, true
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>perimeter</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">perimeter</span>

Containment boundary and responder waypoints estimated from active sensor alerts.

<span class="header">API Endpoints:</span>
  <a href="/api/v1/estimate">GET /api/v1/estimate</a>           - Latest boundary and waypoints (JSON)
  <a href="/api/v1/estimate.kml">GET /api/v1/estimate.kml</a>       - Latest boundary as KML
  <a href="/api/v1/estimate.geojson">GET /api/v1/estimate.geojson</a>   - Latest boundary as GeoJSON
  <a href="/metrics">GET /metrics</a>                   - Prometheus metrics

<span class="header">gRPC:</span>
  grpc.health.v1.Health/Check  service "` + HealthServiceName + `"
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		logging.Errorw(r.Context(), "Failed to write homepage HTML", "error", err)
	}
}
