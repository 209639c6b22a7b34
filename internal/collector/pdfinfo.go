package collector

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disablePdfcpuConfig sync.Once

// inspectPDF validates data in relaxed mode and returns its page count.
func inspectPDF(data []byte) (int, error) {
	disablePdfcpuConfig.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return 0, fmt.Errorf("validate pdf: %w", err)
	}
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return pages, nil
}
