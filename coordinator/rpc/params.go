package rpc

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/karstnet/karst/config/params"
	"github.com/karstnet/karst/coordinator/ingest"
	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/karstnet/karst/network/httputil"
)

// Request parameter helpers. Each writes the rejection itself and
// returns false, so handlers read top to bottom. Malformed path and
// query parameters are 400s, body validation failures are 422s matching
// the event taxonomy.

func writeIngestError(w http.ResponseWriter, rej *ingest.Error) {
	httputil.WriteError(w, &httputil.ErrorJson{Err: rej.Code, Detail: rej.Detail, Code: rej.Status})
}

func hex32Var(w http.ResponseWriter, r *http.Request, name string) ([32]byte, bool) {
	val, err := bytesutil.DecodeHex32(mux.Vars(r)[name])
	if err != nil {
		httputil.HandleError(w, "invalid_"+name, name+" must be 32 bytes of hex", http.StatusBadRequest)
		return [32]byte{}, false
	}
	return val, true
}

func uintVar(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	val, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		httputil.HandleError(w, "invalid_"+name, name+" must be an unsigned integer", http.StatusBadRequest)
		return 0, false
	}
	return val, true
}

func intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		httputil.HandleError(w, "invalid_"+name, name+" must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return val, true
}

func int64Query(w http.ResponseWriter, r *http.Request, name string, def int64) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httputil.HandleError(w, "invalid_"+name, name+" must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return val, true
}

// clampPage folds a client page size into the configured bounds. Zero
// or negative asks for the default page.
func clampPage(limit int) int {
	cfg := params.KarstConfig()
	if limit <= 0 {
		return cfg.DefaultPageSize
	}
	if limit > cfg.MaxPageSize {
		return cfg.MaxPageSize
	}
	return limit
}

// hex32Query parses an optional 32 byte hex query parameter. The second
// return reports presence, the third validity.
func hex32Query(w http.ResponseWriter, r *http.Request, name string) ([32]byte, bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return [32]byte{}, false, true
	}
	val, err := bytesutil.DecodeHex32(raw)
	if err != nil {
		httputil.HandleError(w, "invalid_"+name, name+" must be 32 bytes of hex", http.StatusBadRequest)
		return [32]byte{}, false, false
	}
	return val, true, true
}
