// Package erp provides the HTTP client for the external ERP system, which owns
// the authoritative material/case catalog for every count document.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"conteo/internal/core/types"
	"conteo/internal/domain/count"
	"conteo/pkg/logger"
)

// Config holds ERP connection configuration.
type Config struct {
	// BaseURL of the ERP gateway, e.g. "https://erp.example.com/wms".
	BaseURL string

	// CatalogPath is the catalog endpoint, POSTed with {"conteo": id}.
	CatalogPath string

	// Basic auth credentials.
	Username string
	Password string

	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for the given gateway URL.
func DefaultConfig(baseURL, username, password string) Config {
	return Config{
		BaseURL:     baseURL,
		CatalogPath: "/conteo/catalogo",
		Username:    username,
		Password:    password,
		Timeout:     30 * time.Second,
	}
}

// Client fetches catalogs from the ERP over HTTP with Basic auth.
// It implements count.CatalogFetcher. No retries: the core treats any failure
// as "no authoritative data"; retry policy belongs to the caller.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a new ERP client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

var _ count.CatalogFetcher = (*Client)(nil)

// catalogRequest is the ERP request body. The raw operator-entered id is sent
// untouched; the ERP applies its own interpretation.
type catalogRequest struct {
	Conteo string `json:"conteo"`
}

// catalogResponse mirrors the ERP wire format.
type catalogResponse struct {
	IBLNR      string        `json:"IBLNR"`
	WERKS      string        `json:"WERKS"`
	LGORT      string        `json:"LGORT"`
	BLDAT      string        `json:"BLDAT"`
	USNAM      string        `json:"USNAM"`
	XBLNI      string        `json:"XBLNI"`
	Materiales []materialDTO `json:"MATERIALES"`
}

type materialDTO struct {
	MATNR string    `json:"MATNR"`
	MAKTX string    `json:"MAKTX"`
	MENGE string    `json:"MENGE"`
	MEINS string    `json:"MEINS"`
	Cases []caseDTO `json:"CASES"`
}

type caseDTO struct {
	Case      string `json:"CASE"`
	WERKS     string `json:"WERKS"`
	LGORT     string `json:"LGORT"`
	Ubicacion string `json:"UBICACION"`
	Cantidad  string `json:"CANTIDAD"`
	Excep     string `json:"EXCEP"`
}

// FetchCatalog retrieves the catalog for the given count-document id.
// A missing MATERIALES array is an empty catalog, not an error. 404 maps to
// count.ErrCatalogNotFound; network failures and 5xx to count.ErrCatalogTransient.
func (c *Client) FetchCatalog(ctx context.Context, rawDocumentID string) (count.Catalog, error) {
	body, err := json.Marshal(catalogRequest{Conteo: rawDocumentID})
	if err != nil {
		return count.Catalog{}, fmt.Errorf("encode catalog request: %w", err)
	}

	url := c.cfg.BaseURL + c.cfg.CatalogPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return count.Catalog{}, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return count.Catalog{}, fmt.Errorf("%w: %v", count.ErrCatalogTransient, err)
	}
	defer resp.Body.Close()

	logger.Debug(ctx, "erp catalog fetch",
		"document_id", rawDocumentID,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return count.Catalog{}, fmt.Errorf("%w: document %q", count.ErrCatalogNotFound, rawDocumentID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return count.Catalog{}, fmt.Errorf("%w: erp rejected credentials (status %d)", count.ErrCatalogTransient, resp.StatusCode)
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return count.Catalog{}, fmt.Errorf("%w: erp status %d", count.ErrCatalogTransient, resp.StatusCode)
	}

	var dto catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return count.Catalog{}, fmt.Errorf("%w: decode catalog: %v", count.ErrCatalogTransient, err)
	}

	return mapCatalog(dto)
}

// mapCatalog converts the ERP wire shape into the domain catalog, parsing the
// string-serialized quantities.
func mapCatalog(dto catalogResponse) (count.Catalog, error) {
	catalog := count.Catalog{
		DocumentID:      dto.IBLNR,
		Site:            dto.WERKS,
		StorageLocation: dto.LGORT,
		PostingDate:     dto.BLDAT,
		ERPUser:         dto.USNAM,
		ReferenceDoc:    dto.XBLNI,
		Materials:       make([]count.Material, 0, len(dto.Materiales)),
	}

	for _, m := range dto.Materiales {
		nominal, err := types.ParseQuantity(m.MENGE)
		if err != nil {
			return count.Catalog{}, fmt.Errorf("%w: material %s quantity %q: %v", count.ErrCatalogTransient, m.MATNR, m.MENGE, err)
		}

		line := count.Material{
			MaterialCode:    m.MATNR,
			Description:     m.MAKTX,
			NominalQuantity: nominal,
			Unit:            m.MEINS,
			CatalogCases:    make([]count.CatalogCase, 0, len(m.Cases)),
		}

		for _, cs := range m.Cases {
			qty, err := types.ParseQuantity(cs.Cantidad)
			if err != nil {
				return count.Catalog{}, fmt.Errorf("%w: case %s quantity %q: %v", count.ErrCatalogTransient, cs.Case, cs.Cantidad, err)
			}
			line.CatalogCases = append(line.CatalogCases, count.CatalogCase{
				CaseID:          cs.Case,
				Site:            cs.WERKS,
				StorageLocation: cs.LGORT,
				Location:        cs.Ubicacion,
				NominalQuantity: qty,
				ExceptionCode:   cs.Excep,
			})
		}

		catalog.Materials = append(catalog.Materials, line)
	}

	return catalog, nil
}
