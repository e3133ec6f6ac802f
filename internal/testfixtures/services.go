package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/chatrooms/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// ChatRoomServiceDeps captures dependencies for constructing a chat room service.
type ChatRoomServiceDeps struct {
	Rooms       application.ChatRoomRepository
	Remote      application.RemoteRooms
	Objects     application.ObjectResolver
	Guard       application.CreateGuard
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewChatRoomService builds a chat room service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewChatRoomService(deps ChatRoomServiceDeps) *application.ChatRoomService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}

	var opts []application.ChatRoomServiceOption
	if deps.Objects != nil {
		opts = append(opts, application.WithObjectResolver(deps.Objects))
	}
	if deps.Guard != nil {
		opts = append(opts, application.WithCreateGuard(deps.Guard))
	}
	return application.NewChatRoomServiceWithLogger(
		deps.Rooms,
		deps.Remote,
		idGen,
		now,
		deps.Logger,
		opts...,
	)
}
