package export

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rpattn/obsquery/internal/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ServeXLSX renders entities and sends them as an attachment.
func ServeXLSX(w http.ResponseWriter, t domain.EntityType, entities []domain.Entity) error {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, t, entities); err != nil {
		return err
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(t, time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
