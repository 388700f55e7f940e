package honeypot

import (
	"encoding/json"
	"html/template"
	"net/http"
)

var formTemplate = template.Must(template.New("decoy").Parse(`<html><body>
<h3>Loading...</h3>
<form id="hp" method="POST">
<input type="hidden" name="{{.Field}}" value="{{.Token}}">
<input name="username">
<input name="message">
<input name="comment">
<textarea name="content"></textarea>
<button type="submit">Submit</button>
</form>
<script>
setTimeout(function () { document.getElementById('hp').submit(); }, 300);
</script>
</body></html>
`))

func writeForm(w http.ResponseWriter, field, token string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = formTemplate.Execute(w, struct{ Field, Token string }{field, token})
}

func writeAck(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeUnavailable is the only failure a decoy shows. It carries nothing
// about what was detected.
func writeUnavailable(w http.ResponseWriter, r *http.Request) {
	if isRead(r.Method) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html><body><h3>Internal Server Error</h3></body></html>\n"))
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
