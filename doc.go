// Package docrender renders HTML templates into PDF documents and per-page
// PNG images.
//
// # Pipeline
//
// A render runs these stages in order; a failing stage aborts the rest and
// its specific error type reaches the caller:
//
//  1. Template load: the record from a TemplateStore, the source from a BlobStore
//  2. Merge: html/template with missing keys treated as errors
//  3. Composition: headless Chrome (go-rod) prints the HTML to PDF
//  4. Rasterization: Poppler (pdfinfo, pdftoppm) renders each page to PNG
//  5. Storage: pages land in an ArtifactStore under one batch token
//
// Remote PDFs enter at stage 4 through a Fetcher.
//
// # Quick Start
//
//	store, err := docrender.NewArtifactStore("/var/lib/docrender/artifacts")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pool := docrender.NewCompositorPool(docrender.ResolvePoolSize(0))
//	defer pool.Close()
//
//	renderer := docrender.NewRenderer(
//	    docrender.NewTemplateService(blobs, records),
//	    pool,
//	    docrender.NewRasterizer(store),
//	    store,
//	    docrender.NewRecorder(logs),
//	)
//
//	pdf, err := renderer.RenderToDocument(ctx, templateID, data, ownerID)
//
// # Templates
//
// Templates use html/template syntax and run with missingkey=error. Besides
// the builtins they can call:
//
//	upper, lower, title       string case
//	join SEP LIST             join list items
//	default FALLBACK VALUE    FALLBACK when VALUE is null or ""
//	date FORMAT VALUE         format a date ("iso", "long", "DD/MM/YYYY", ...)
//	items MAP                 entries as .Key/.Value in the order sent
//	float VALUE               number as float64, for mixed comparisons
//	safe, safeCSS, safeURL    emit data without escaping
//
// Ranging over a mapping directly visits keys in sorted order; use items to
// keep the order of the request payload. Whole numbers reach templates as
// int64 and others as float64, so compare them through float when the
// literal may be of the other kind: {{if gt (float .price) 2.5}}.
//
// # Errors
//
// Stage errors keep their types (*TemplateSyntaxError, *FetchError,
// *CorruptDocumentError, ...). Classify maps any of them to a Category for
// transport layers; the full chain stays available for logs.
//
// # Artifacts
//
// Artifact filenames have the form {token}_page_{n}.png where token is 8
// lowercase hex characters. ArtifactStore.Resolve accepts nothing else, and
// GarbageCollect removes artifacts older than a maximum age.
//
// # Browser Requirements
//
// PDF generation requires Chrome/Chromium. The go-rod library downloads a
// managed Chromium on first run unless ROD_BROWSER_BIN points to one.
// The sandbox is disabled when CI=true or ROD_BROWSER_BIN is set.
package docrender
