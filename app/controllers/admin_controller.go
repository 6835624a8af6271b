package controllers

import (
	"context"

	"github.com/ManuelReschke/ChannelPass/app/repository"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/broadcast"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/enforcement"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/membership"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/scheduler"
)

// QueueStatsProvider reports notification queue sizes.
type QueueStatsProvider interface {
	GetStats(ctx context.Context) (*jobqueue.Stats, error)
}

// AdminController serves the /api/v1 admin endpoints.
type AdminController struct {
	memberships *membership.Service
	engine      *enforcement.Engine
	broadcasts  *broadcast.Dispatcher
	scheduler   *scheduler.Scheduler
	queue       QueueStatsProvider
	settings    repository.SettingRepository
	botUsers    repository.BotUserRepository
}

type AdminDeps struct {
	Memberships *membership.Service
	Engine      *enforcement.Engine
	Broadcasts  *broadcast.Dispatcher
	Scheduler   *scheduler.Scheduler
	Queue       QueueStatsProvider
	Repos       *repository.Repositories
}

func NewAdminController(deps AdminDeps) *AdminController {
	ac := &AdminController{
		memberships: deps.Memberships,
		engine:      deps.Engine,
		broadcasts:  deps.Broadcasts,
		scheduler:   deps.Scheduler,
		queue:       deps.Queue,
	}
	if deps.Repos != nil {
		ac.settings = deps.Repos.Setting
		ac.botUsers = deps.Repos.BotUser
	}
	return ac
}
