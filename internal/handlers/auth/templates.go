package auth

import "html/template"

const AccountTemplate = "account.html"

// Templates holds the server-rendered pages; install with gin's SetHTMLTemplate.
var Templates = template.Must(template.New(AccountTemplate).Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Your account</title></head>
<body>
<h1>{{.Name}}</h1>
<p>{{.Email}}{{if not .Verified}} (unverified){{end}}</p>
{{if .Admin}}<p><a href="/api/admin/ws/stats">Admin</a></p>{{end}}
<form method="post" action="/api/auth/signout"><button type="submit">Sign out</button></form>
</body>
</html>
`))
