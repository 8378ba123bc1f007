// Package canvas is an in-memory raster document that implements the
// engine providers of the plugin API.
//
// A Document holds a stack of RGBA layers of the same size, an optional
// rectangular selection and snapshot based undo history. Its facets
// (Canvas, Layers, Filters, Strokes, History, Selection) and ConsoleUI
// plug into api.Providers:
//
//	doc := canvas.New(800, 600)
//	builder := api.NewBuilder(api.WithProviders(doc.Providers()))
//
// Built-in filters are grayscale, invert, brightness{amount} and
// fill{color}; they run over the active layer, limited to the selection.
package canvas
