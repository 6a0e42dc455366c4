// Package render loads the monitored page in a headless browser and hands the
// rendered DOM to the extractor.
//
// # Ready signal
//
// The monitored grid is filled by JavaScript after the load event, so waiting for
// "load" alone returns an empty table and a fixed sleep either wastes time or
// fires too early. The rod renderer waits for the first ready selector to appear
// (by default the row selectors of the extraction strategies) and then for the
// page to settle for a short bounded period.
//
// # Failure
//
// A timeout is not fatal. The renderer takes a screenshot, reads whatever DOM
// exists and returns it marked Partial together with a *RenderError, so the
// pipeline can still extract what is there and the differ knows not to treat
// missing rows as resolved.
//
// # Components
//
//   - Renderer: the interface the pipeline depends on
//   - Rod: the go-rod implementation driving Chrome
//   - Static: returns fixed or file-backed HTML for offline checks and tests
package render
