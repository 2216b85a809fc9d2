package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
)

const swaggerUIVersion = "5.17.14"

// APIDocs serves the embedded OpenAPI document and a Swagger UI page for it.
type APIDocs struct {
	spec []byte
	etag string
}

// NewAPIDocs returns nil for an empty spec; the routes are then not mounted.
func NewAPIDocs(spec []byte) *APIDocs {
	if len(spec) == 0 {
		return nil
	}
	sum := sha256.Sum256(spec)
	return &APIDocs{spec: spec, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}
}

// Spec serves the YAML with an ETag so the UI can revalidate cheaply.
func (d *APIDocs) Spec(c *gin.Context) {
	c.Header("ETag", d.etag)
	c.Header("Cache-Control", "no-cache")
	if c.GetHeader("If-None-Match") == d.etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/yaml", d.spec)
}

func (d *APIDocs) UI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerPage))
}

const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Wallet Ledger API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@` + swaggerUIVersion + `/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@` + swaggerUIVersion + `/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/swagger/spec',
      dom_id: '#swagger-ui',
      persistAuthorization: true,
      presets: [SwaggerUIBundle.presets.apis],
    });
  </script>
</body>
</html>`
