package application

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/nilebridge/cargoledger/internal/ledger/domain"
)

// AdminService 行政命令：客户建档与汇率维护。
// 余额字段不在这里写——那是对账引擎的专属权限。
type AdminService struct {
	txm     domain.TxManager
	clients domain.ClientRepository
	rates   domain.RateRepository
	audit   domain.ActivityRecorder
	logger  *slog.Logger
}

// NewAdminService 创建行政服务
func NewAdminService(
	txm domain.TxManager,
	clients domain.ClientRepository,
	rates domain.RateRepository,
	audit domain.ActivityRecorder,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		txm:     txm,
		clients: clients,
		rates:   rates,
		audit:   audit,
		logger:  logger.With("module", "admin_service"),
	}
}

// CreateClientCommand 客户建档命令
type CreateClientCommand struct {
	Code       string
	Name       string
	ArabicName string
	ActorID    string
}

// CreateClient 客户建档，编码唯一
func (s *AdminService) CreateClient(ctx context.Context, cmd CreateClientCommand) (uint64, error) {
	if cmd.Code == "" || cmd.Name == "" {
		return 0, domain.NewError(domain.CodeValidation, "client code and name are required")
	}

	var clientID uint64
	err := s.txm.Transaction(ctx, func(ctx context.Context) error {
		existing, err := s.clients.GetByCode(ctx, cmd.Code)
		if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		if existing != nil {
			return domain.NewError(domain.CodeValidation, "client code %s already exists", cmd.Code)
		}

		client := domain.NewClient(cmd.Code, cmd.Name, cmd.ArabicName)
		if err := s.clients.Save(ctx, client); err != nil {
			return err
		}
		clientID = client.ID

		s.audit.Record(ctx, "client.create", cmd.ActorID, "client "+cmd.Code+" created", "clients", client.ID)
		return nil
	})
	if err != nil {
		return 0, domain.AsError(err)
	}
	return clientID, nil
}

// SetClientStatus 启停客户
func (s *AdminService) SetClientStatus(ctx context.Context, clientID uint64, active bool, actorID string) error {
	err := s.txm.Transaction(ctx, func(ctx context.Context) error {
		client, err := s.clients.GetWithLock(ctx, clientID)
		if err != nil {
			return err
		}
		if active {
			client.Activate()
		} else {
			client.Deactivate()
		}
		if err := s.clients.Save(ctx, client); err != nil {
			return err
		}
		s.audit.Record(ctx, "client.status", actorID, "client status changed", "clients", client.ID)
		return nil
	})
	if err != nil {
		return domain.AsError(err)
	}
	return nil
}

// UpsertRateCommand 汇率维护命令
type UpsertRateCommand struct {
	From    domain.Currency
	To      domain.Currency
	Rate    decimal.Decimal
	Source  domain.RateSourceType
	ActorID string
}

// UpsertRate 写入汇率，最新覆盖；反向对由仓储层清除，
// 保证任何时刻一个币种对只有一个权威方向。
func (s *AdminService) UpsertRate(ctx context.Context, cmd UpsertRateCommand) error {
	source := cmd.Source
	if source == "" {
		source = domain.RateSourceManual
	}
	rate, err := domain.NewExchangeRate(cmd.From, cmd.To, cmd.Rate, source)
	if err != nil {
		return domain.AsError(err)
	}

	err = s.txm.Transaction(ctx, func(ctx context.Context) error {
		if err := s.rates.Upsert(ctx, rate); err != nil {
			return err
		}
		s.audit.Record(ctx, "rate.upsert", cmd.ActorID, "rate "+rate.Pair+" set to "+rate.Rate.String(), "exchange_rates", rate.ID)
		return nil
	})
	if err != nil {
		return domain.AsError(err)
	}
	s.logger.InfoContext(ctx, "exchange rate updated", "pair", rate.Pair, "rate", rate.Rate)
	return nil
}
