package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const indexPage = `<!doctype html>
<meta charset="utf-8">
<title>Moderation Gateway</title>
<style>
body{font-family:system-ui,Segoe UI,Roboto,Helvetica,Arial;margin:2rem;max-width:900px}
textarea{width:100%;height:8rem}
button{padding:.6rem 1rem;margin-top:.5rem}
</style>
<h1>Moderation Gateway</h1>
<p>POST <code>/moderate</code> with JSON or <code>/moderate/plain</code> with text/plain.
For several texts at once use <code>/moderate/batch</code>.</p>
<form method="post" action="/moderate/plain">
<textarea name="text" placeholder="Type text to moderate..."></textarea><br>
<button type="submit">Moderate</button>
</form>
<p>Health: <a href="/healthz">/healthz</a> &middot; Ready: <a href="/readyz">/readyz</a></p>
`

// Index serves a small form for trying the gateway from a browser.
func Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}
