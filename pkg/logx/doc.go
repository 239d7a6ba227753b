// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so services depend on a small Logger value instead of a concrete
// zerolog.Logger, and so sink configuration (console/file, level) can be
// swapped at runtime via Service.Apply without re-plumbing loggers.
package logx
