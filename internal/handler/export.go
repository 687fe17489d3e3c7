package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Quota Monitor Catalog</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 20px; }
        h1 { color: #232f3e; }
        table { border-collapse: collapse; width: 100%; margin-top: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #232f3e; color: white; }
        tr:nth-child(even) { background-color: #f2f2f2; }
        tr:hover { background-color: #ddd; }
        .timestamp { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>Monitored Service Quotas</h1>
    <p class="timestamp">Generated: {{.Generated}}</p>
    <p>Total quotas: {{len .Rows}}</p>
    <table>
        <thead>
            <tr>
                <th>Region</th>
                <th>Service</th>
                <th>Quota Code</th>
                <th>Quota Name</th>
                <th>Value</th>
                <th>Usage Metric</th>
                <th>Last Monitored</th>
            </tr>
        </thead>
        <tbody>
{{- range .Rows}}
            <tr>
                <td>{{.Region}}</td>
                <td>{{.ServiceCode}}</td>
                <td>{{.QuotaCode}}</td>
                <td>{{.QuotaName}}</td>
                <td>{{printf "%.0f" .Value}}</td>
                <td>{{with .UsageMetric}}{{.Namespace}}/{{.MetricName}}{{end}}</td>
                <td>{{.LastMonitored.UTC.Format "2006-01-02 15:04:05"}}</td>
            </tr>
{{- end}}
        </tbody>
    </table>
</body>
</html>
`))

func (h *Handler) exportRows(c *gin.Context) ([]QuotaRow, bool, bool) {
	region, cat, ok := h.catalog(c)
	if !ok {
		return nil, false, false
	}
	rows, fromCache, err := h.loadQuotas(c.Request.Context(), region, cat, c.Query("service"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false, false
	}
	return rows, fromCache, true
}

func (h *Handler) ExportJSON(c *gin.Context) {
	rows, fromCache, ok := h.exportRows(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("quota-monitor-%s.json", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.JSON(http.StatusOK, QuotaResponse{
		Quotas:    rows,
		Total:     len(rows),
		FetchedAt: time.Now(),
		FromCache: fromCache,
	})
}

func (h *Handler) ExportHTML(c *gin.Context) {
	rows, _, ok := h.exportRows(c)
	if !ok {
		return
	}

	html, err := generateHTMLReport(rows, time.Now())
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	filename := fmt.Sprintf("quota-monitor-%s.html", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func generateHTMLReport(rows []QuotaRow, generated time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, struct {
		Generated string
		Rows      []QuotaRow
	}{
		Generated: generated.Format("2006-01-02 15:04:05"),
		Rows:      rows,
	})
	return buf.Bytes(), err
}
