// Command mockregistry serves a deterministic civil registry for local runs and
// end-to-end tests. The last digit of the NIK selects the answer.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"identrisk/internal/platform/httpserver"
	"identrisk/internal/platform/logger"
	"identrisk/pkg/platform/httputil"
)

func main() {
	var addr string
	cmd := &cobra.Command{
		Use:   "mockregistry",
		Short: "Deterministic civil registry stub",
		Long: `Answers GET /v1/citizens/{nik} by the NIK's last digit:
  0  not registered (404)
  7  INACTIVE
  8  DECEASED
  9  registry outage (503)
  otherwise ACTIVE`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.New(os.Getenv("APP_ENV"))
			log.Info("starting mock registry", "addr", addr)
			return httpserver.New(addr, newRouter(log)).ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type citizen struct {
	NIK        string   `json:"nik"`
	Name       string   `json:"name"`
	BirthDate  string   `json:"birthDate"`
	Gender     string   `json:"gender"`
	Status     string   `json:"status"`
	MatchScore *float64 `json:"matchScore,omitempty"`
}

func newRouter(log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)
	r.Get("/v1/citizens/{nik}", func(w http.ResponseWriter, r *http.Request) {
		nik := chi.URLParam(r, "nik")
		log.InfoContext(r.Context(), "registry lookup", "nik_suffix", suffix(nik))
		answer(w, nik)
	})
	return r
}

func answer(w http.ResponseWriter, nik string) {
	if nik == "" {
		http.NotFound(w, nil)
		return
	}
	status := "ACTIVE"
	switch nik[len(nik)-1] {
	case '0':
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	case '9':
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "registry_unavailable"})
		return
	case '7':
		status = "INACTIVE"
	case '8':
		status = "DECEASED"
	}

	score := 0.97
	httputil.WriteJSON(w, http.StatusOK, citizen{
		NIK:        nik,
		Name:       "WARGA " + suffix(nik),
		BirthDate:  birthDate(nik),
		Gender:     gender(nik),
		Status:     status,
		MatchScore: &score,
	})
}

// birthDate reads DDMMYY from NIK digits 7-12; women have 40 added to the day.
func birthDate(nik string) string {
	if len(nik) != 16 {
		return ""
	}
	day := int(nik[6]-'0')*10 + int(nik[7]-'0')
	if day > 40 {
		day -= 40
	}
	yy := nik[10:12]
	century := "19"
	if yy < "30" {
		century = "20"
	}
	return fmt.Sprintf("%s%s-%s-%02d", century, yy, nik[8:10], day)
}

func gender(nik string) string {
	if len(nik) == 16 && nik[6] >= '4' {
		return "PEREMPUAN"
	}
	return "LAKI-LAKI"
}

func suffix(nik string) string {
	if len(nik) <= 4 {
		return nik
	}
	return strings.Repeat("*", len(nik)-4) + nik[len(nik)-4:]
}
