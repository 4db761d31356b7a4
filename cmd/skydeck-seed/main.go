// Command skydeck-seed populates a running skydeck instance with demo
// applications through the public API, one per starter template. It is meant
// for fresh installs and demo environments.
package main

import (
	"archive/zip"
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"mime/multipart"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/services/templates"
	"github.com/skydeck-host/skydeck/internal/httputil"
)

func main() {
	var (
		apiURL  = flag.String("api", "http://localhost:8080", "Base URL of the skydeck API")
		token   = flag.String("token", "", "API token; defaults to SKYDECK_API_TOKEN")
		envFile = flag.String("env", ".env", "Path to an optional env file")
		timeout = flag.Duration("timeout", 2*time.Minute, "Overall seeding deadline")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("load env (%s): %v", *envFile, err)
	}
	if *token == "" {
		*token = os.Getenv("SKYDECK_API_TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := httputil.NewClient(httputil.ClientConfig{
		BaseURL: *apiURL,
		Token:   *token,
	})

	resp, err := client.Get(ctx, "/health")
	if err != nil {
		log.Fatalf("reach %s: %v", *apiURL, err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		log.Fatalf("health check: %v", err)
	}

	catalog, err := templates.NewCatalog("")
	if err != nil {
		log.Fatalf("load template catalog: %v", err)
	}
	all, err := catalog.List("")
	if err != nil {
		log.Fatalf("list templates: %v", err)
	}

	for _, tpl := range all {
		if err := deployDemo(ctx, client, tpl); err != nil {
			log.Fatalf("deploy %s: %v", tpl.ID, err)
		}
		fmt.Printf("deployed %s (%s)\n", tpl.Name, tpl.Kind)
	}
	fmt.Printf("seeded %d demo applications\n", len(all))
}

func deployDemo(ctx context.Context, client *httputil.Client, tpl templates.Template) error {
	archive, err := demoArchive(tpl)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"name":        "Demo " + tpl.Name,
		"description": tpl.Description,
		"public":      "true",
	}
	path := "/api/apps/html"
	if tpl.Kind == application.KindNodeJS {
		path = "/api/apps/nodejs"
		fields["start_command"] = "node server.js"
		fields["port"] = "3000"
	}
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %s: %w", key, err)
		}
	}
	part, err := mw.CreateFormFile("file", tpl.ID+".zip")
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(archive); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	resp, err := client.PostMultipart(ctx, path, mw.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	return httputil.DecodeResponse(resp, nil)
}

// demoArchive renders a minimal working scaffold for the template.
func demoArchive(tpl templates.Template) ([]byte, error) {
	files := map[string]string{}
	if tpl.Kind == application.KindHTML {
		files["index.html"] = fmt.Sprintf(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>%s</title><link rel="stylesheet" href="style.css"></head>
<body>
<h1>%s</h1>
<p>%s</p>
<p class="tags">%s</p>
</body>
</html>
`, tpl.Name, tpl.Name, tpl.Description, strings.Join(tpl.Tags, ", "))
		files["style.css"] = "body{font-family:sans-serif;max-width:640px;margin:4rem auto}.tags{color:#888}\n"
	} else {
		files["server.js"] = fmt.Sprintf(`const http = require('http');
const server = http.createServer((req, res) => {
  res.setHeader('Content-Type', 'application/json');
  res.end(JSON.stringify({ template: %q, description: %q }));
});
server.listen(process.env.PORT || 3000);
`, tpl.ID, tpl.Description)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		entry, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			return nil, fmt.Errorf("write zip entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
