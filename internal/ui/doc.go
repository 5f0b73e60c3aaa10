// Package ui delivers coordinator callbacks on a single, ordered goroutine.
// FyneDispatcher targets the Fyne main goroutine; SerialDispatcher is used
// when the application runs without a window.
package ui
