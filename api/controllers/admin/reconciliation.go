package admin

import (
	"context"
	"net/http"

	"github.com/angelmondragon/settlement-backend/api/responses"
	"github.com/angelmondragon/settlement-backend/internal/reconciliation"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

type reconciliationReporter interface {
	Report(ctx context.Context) (*reconciliation.Report, error)
}

type reportResponse struct {
	*reconciliation.Report
	Clean  bool                              `json:"clean"`
	Counts map[reconciliation.DefectKind]int `json:"counts"`
}

// ReconciliationReport runs the read-only audit on demand.
func ReconciliationReport(svc reconciliationReporter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Report(r.Context())
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build reconciliation report")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reportResponse{Report: report, Clean: report.Clean(), Counts: report.Counts()})
	}
}
