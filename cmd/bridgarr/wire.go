//go:build wireinject
// +build wireinject

package main

import (
	"github.com/amaumene/bridgarr/internal/config"
	"github.com/google/wire"
	"github.com/sirupsen/logrus"
)

// initApp wires the store, providers, queue and controllers. The returned
// cleanup closes the store.
func initApp(cfg *config.Config, logger *logrus.Logger) (*app, func(), error) {
	wire.Build(appSet)
	return nil, nil, nil
}
