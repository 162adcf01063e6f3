// Package views holds the server-rendered pages.
package views

import (
	"embed"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/template/html/v2"
	"github.com/stockscope/backend/internal/analysis"
)

//go:embed layouts/*.html *.html
var files embed.FS

// Layout is the page shell every view renders into.
const Layout = "layouts/main"

// NewEngine returns the Fiber template engine over the embedded pages.
func NewEngine() *html.Engine {
	engine := html.NewFileSystem(http.FS(files), ".html")
	engine.AddFunc("money", func(v float64) string {
		if v <= 0 {
			return "n/a"
		}
		return "$" + formatFloat(v, 2)
	})
	engine.AddFunc("score", func(v float64) string {
		return formatFloat(v, 1)
	})
	engine.AddFunc("ratingClass", func(r analysis.Rating) string {
		return "rating-" + strings.ToLower(string(r))
	})
	return engine
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
