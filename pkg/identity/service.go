package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/internal/repositories/alias"
	"github.com/Ramsey-B/sorrel/internal/repositories/identifier"
	"github.com/Ramsey-B/sorrel/internal/repositories/manuallink"
	"github.com/Ramsey-B/sorrel/internal/repositories/person"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/normalizers"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Events receives notifications about identity graph changes. Implemented by
// the kafka emitter; a nil Events is a no-op.
type Events interface {
	EmitPersonCreated(ctx context.Context, tenantID string, personID string)
}

// Service is the ingestion-facing surface of the identity graph. It owns
// person/identifier/alias creation; merging is the merge engine's job.
type Service struct {
	logger         ectologger.Logger
	personRepo     *person.Repository
	identifierRepo *identifier.Repository
	aliasRepo      *alias.Repository
	manualRepo     *manuallink.Repository
	events         Events
}

// NewService creates a new identity service
func NewService(
	logger ectologger.Logger,
	personRepo *person.Repository,
	identifierRepo *identifier.Repository,
	aliasRepo *alias.Repository,
	manualRepo *manuallink.Repository,
	events Events,
) *Service {
	return &Service{
		logger:         logger,
		personRepo:     personRepo,
		identifierRepo: identifierRepo,
		aliasRepo:      aliasRepo,
		manualRepo:     manualRepo,
		events:         events,
	}
}

// CanonicalPersonID resolves any person id, root or merged, to its current
// canonical root.
func (s *Service) CanonicalPersonID(ctx context.Context, tenantID string, personID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.CanonicalPersonID")
	defer span.End()

	return ResolveRoot(ctx, tenantID, personID, s.personRepo.GetMergedInto)
}

// FindOrCreatePerson resolves a raw record to a canonical person id,
// creating the person when nothing matches. Records with no usable
// identifying fields are routed to the manual link queue instead of
// producing a throwaway person.
func (s *Service) FindOrCreatePerson(ctx context.Context, tenantID string, req *models.FindOrCreatePersonRequest) (*models.FindOrCreatePersonResult, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.FindOrCreatePerson")
	defer span.End()

	email := normalizers.NormalizeEmail(req.Email)
	phone := normalizers.NormalizePhone(req.Phone)
	fullName := strings.TrimSpace(strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName))
	nameNorm := normalizers.NormalizeName(fullName)

	if email == "" && phone == "" && nameNorm == "" {
		return s.queueForManualLink(ctx, tenantID, req, "no usable identifiers after normalization")
	}

	personID, err := s.findByIdentifiers(ctx, tenantID, email, phone)
	if err != nil {
		return nil, err
	}

	created := false
	if personID == "" {
		if nameNorm == "" {
			// An identifier with no name at all still carries enough
			// signal to anchor a person row.
			s.logger.WithContext(ctx).WithFields(map[string]any{"source_system": req.SourceSystem}).Debug("Creating person without a name")
		}
		newPerson, err := s.createPerson(ctx, tenantID, req, email, phone, fullName, nameNorm)
		if err != nil {
			return nil, err
		}
		personID = newPerson.ID
		created = true
	}

	if err := s.attachFacts(ctx, tenantID, personID, req, email, phone, fullName, nameNorm); err != nil {
		return nil, err
	}

	if created && s.events != nil {
		s.events.EmitPersonCreated(ctx, tenantID, personID)
	}

	return &models.FindOrCreatePersonResult{
		PersonID: personID,
		Created:  created,
	}, nil
}

// findByIdentifiers looks up an existing canonical person by normalized
// email first, then phone. Multiple holders of one value resolve to the
// first canonical root found; the remaining holders stay separate persons
// until the matching pipeline scores them.
func (s *Service) findByIdentifiers(ctx context.Context, tenantID string, email, phone string) (string, error) {
	lookups := []struct {
		idType models.IdentifierType
		value  string
	}{
		{models.IdentifierTypeEmail, email},
		{models.IdentifierTypePhone, phone},
	}

	for _, lookup := range lookups {
		if lookup.value == "" {
			continue
		}
		personIDs, err := s.identifierRepo.FindPersonIDsByValue(ctx, tenantID, lookup.idType, lookup.value)
		if err != nil {
			return "", err
		}
		for _, id := range personIDs {
			root, err := ResolveRoot(ctx, tenantID, id, s.personRepo.GetMergedInto)
			if err != nil {
				return "", err
			}
			return root, nil
		}
	}

	return "", nil
}

func (s *Service) createPerson(ctx context.Context, tenantID string, req *models.FindOrCreatePersonRequest, email, phone, fullName, nameNorm string) (*models.Person, error) {
	displayName := fullName
	if displayName == "" {
		if email != "" {
			displayName = email
		} else {
			displayName = phone
		}
	}

	newPerson := &models.Person{
		TenantID:    tenantID,
		DisplayName: displayName,
	}
	if first := strings.TrimSpace(req.FirstName); first != "" {
		newPerson.FirstName = &first
	}
	if last := strings.TrimSpace(req.LastName); last != "" {
		newPerson.LastName = &last
	}
	if nameNorm != "" {
		newPerson.NameNorm = &nameNorm
		soundexSource := nameNorm
		if newPerson.LastName != nil {
			soundexSource = normalizers.NormalizeName(*newPerson.LastName)
		}
		soundex := normalizers.Soundex(soundexSource)
		newPerson.NameSoundex = &soundex
	}
	if addressNorm := normalizers.NormalizeAddress(req.Address); addressNorm != "" {
		newPerson.AddressNorm = &addressNorm
	}
	if locality := strings.ToLower(strings.TrimSpace(req.Locality)); locality != "" {
		newPerson.Locality = &locality
	}

	return s.personRepo.Create(ctx, newPerson)
}

// attachFacts records the record's identifiers and name variant against the
// resolved person. Inserts are conflict-free so replays are harmless.
func (s *Service) attachFacts(ctx context.Context, tenantID string, personID string, req *models.FindOrCreatePersonRequest, email, phone, fullName, nameNorm string) error {
	var identifiers []*models.Identifier
	if email != "" {
		identifiers = append(identifiers, &models.Identifier{
			TenantID:     tenantID,
			PersonID:     personID,
			IDType:       models.IdentifierTypeEmail,
			ValueRaw:     strings.TrimSpace(req.Email),
			ValueNorm:    email,
			SourceSystem: req.SourceSystem,
		})
	}
	if phone != "" {
		identifiers = append(identifiers, &models.Identifier{
			TenantID:     tenantID,
			PersonID:     personID,
			IDType:       models.IdentifierTypePhone,
			ValueRaw:     strings.TrimSpace(req.Phone),
			ValueNorm:    phone,
			SourceSystem: req.SourceSystem,
		})
	}
	if err := s.identifierRepo.CreateBatch(ctx, identifiers); err != nil {
		return err
	}

	if nameNorm != "" {
		return s.aliasRepo.Record(ctx, &models.Alias{
			TenantID:     tenantID,
			PersonID:     personID,
			Name:         fullName,
			NameNorm:     nameNorm,
			SourceSystem: req.SourceSystem,
		})
	}

	return nil
}

func (s *Service) queueForManualLink(ctx context.Context, tenantID string, req *models.FindOrCreatePersonRequest, reason string) (*models.FindOrCreatePersonResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode manual link payload")
	}

	record := &models.ManualLinkRecord{
		TenantID:     tenantID,
		SourceSystem: req.SourceSystem,
		Reason:       reason,
		Payload:      payload,
	}
	if _, err := s.manualRepo.Enqueue(ctx, record); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"source_system": req.SourceSystem,
		"reason":        reason,
	}).Warn("Record routed to manual link queue")

	return &models.FindOrCreatePersonResult{
		Queued:       true,
		QueuedReason: reason,
	}, nil
}
