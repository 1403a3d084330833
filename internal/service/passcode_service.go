package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/brototype/portal-backend/internal/response"
	"github.com/rs/zerolog"
)

// passcodeAlphabet leaves out characters that are easy to misread.
const passcodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxIssueRounds = 3

// PasscodeService issues and lists registration passcodes.
type PasscodeService struct {
	passcodeRepo *repository.PasscodeRepository
	log          zerolog.Logger
}

// NewPasscodeService creates a new PasscodeService.
func NewPasscodeService(passcodeRepo *repository.PasscodeRepository, log zerolog.Logger) *PasscodeService {
	return &PasscodeService{
		passcodeRepo: passcodeRepo,
		log:          log.With().Str("component", "passcode_service").Logger(),
	}
}

// Issue creates count new unused passcodes.
func (s *PasscodeService) Issue(ctx context.Context, count int) ([]model.Passcode, error) {
	issued := make([]model.Passcode, 0, count)

	for round := 0; round < maxIssueRounds && len(issued) < count; round++ {
		codes := make([]string, 0, count-len(issued))
		for len(codes) < cap(codes) {
			code, err := GeneratePasscode()
			if err != nil {
				return nil, fmt.Errorf("generate passcode: %w", err)
			}
			codes = append(codes, code)
		}

		created, err := s.passcodeRepo.CreateBatch(ctx, codes)
		if err != nil {
			return nil, err
		}
		issued = append(issued, created...)
	}

	if len(issued) < count {
		return issued, fmt.Errorf("issued %d of %d passcodes", len(issued), count)
	}

	s.log.Info().Int("count", len(issued)).Msg("Passcodes issued")
	return issued, nil
}

// List retrieves passcodes, optionally filtered by used state.
func (s *PasscodeService) List(ctx context.Context, used *bool, page, perPage int) ([]model.Passcode, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	offset := (page - 1) * perPage

	passcodes, total, err := s.passcodeRepo.ListPaginated(ctx, used, perPage, offset)
	if err != nil {
		return nil, nil, err
	}

	if passcodes == nil {
		passcodes = []model.Passcode{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}

	return passcodes, pagination, nil
}

// GeneratePasscode returns a random code of the form BRO-XXXX-XXXX.
func GeneratePasscode() (string, error) {
	buf := make([]byte, 8)
	limit := big.NewInt(int64(len(passcodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = passcodeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("BRO-%s-%s", buf[:4], buf[4:]), nil
}
