package handler

import (
	"chatgate/internal/app/gateway"
	"chatgate/internal/app/store"
	"chatgate/internal/configs"
)

type AppDeps struct {
	Gateway *gateway.Gateway
	Config  *configs.AppConfig
	Store   store.Store
}
