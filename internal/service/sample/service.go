package sample

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/okonek/teamspace/internal/apperr"
	"github.com/okonek/teamspace/internal/domain"
	"github.com/okonek/teamspace/internal/repository"
	"github.com/okonek/teamspace/internal/storage"
	"github.com/okonek/teamspace/pkg/config"
)

const (
	nameMinLength        = 2
	nameMaxLength        = 50
	descriptionMaxLength = 512
)

// Feed receives change events for fan-out to realtime subscribers.
type Feed interface {
	Publish(event domain.ChangeEvent)
}

// Service handles sample content records and their image assets.
type Service struct {
	samples repository.SampleRepository
	members repository.MembershipRepository
	images  storage.ImageStore
	feed    Feed
	logger  *slog.Logger
	cfg     config.AppConfig
}

// New constructs a Service.
func New(samples repository.SampleRepository, members repository.MembershipRepository, images storage.ImageStore, feed Feed, logger *slog.Logger, cfg config.AppConfig) Service {
	return Service{samples: samples, members: members, images: images, feed: feed, logger: logger, cfg: cfg}
}

func validateSampleInput(name, description string) error {
	if len(name) < nameMinLength {
		return apperr.Newf(apperr.KindInvalid, "name must be at least %d characters", nameMinLength)
	}
	if len(name) > nameMaxLength {
		return apperr.Newf(apperr.KindInvalid, "name must be less than %d characters", nameMaxLength)
	}
	if len(description) > descriptionMaxLength {
		return apperr.Newf(apperr.KindInvalid, "description must be less than %d characters", descriptionMaxLength)
	}
	return nil
}

// CreateInput carries a sample creation request.
type CreateInput struct {
	Name        string
	Description string
	TeamID      string
	Image       *storage.ImageUpload
}

// Create writes a sample, optionally scoped to a team the caller belongs
// to. The image uploads before the record write; if the write fails the
// registered compensating actions run in reverse and remove the asset.
func (s Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Sample, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateSampleInput(input.Name, input.Description); err != nil {
		return nil, err
	}
	if input.TeamID != "" {
		member, err := s.members.GetMembership(ctx, input.TeamID, userID)
		if err != nil || !member.Confirmed {
			return nil, apperr.New(apperr.KindForbidden, "you are not a member of this team")
		}
	}

	var undos undoStack
	imageID := ""
	if input.Image != nil {
		if err := storage.ValidateImage(input.Image.Filename, input.Image.Size); err != nil {
			return nil, apperr.New(apperr.KindInvalid, err.Error())
		}
		imageID = uuid.NewString()
		if err := s.images.Upload(ctx, s.cfg.SampleBucket, imageID, input.Image.Data, input.Image.Size, input.Image.ContentType); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "could not upload image", err)
		}
		assetID := imageID
		undos.add("delete uploaded image", func(ctx context.Context) error {
			return s.images.Delete(ctx, s.cfg.SampleBucket, assetID)
		})
	}

	now := time.Now().UTC()
	sample := &domain.Sample{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Description: input.Description,
		ImageID:     imageID,
		UserID:      userID,
		TeamID:      input.TeamID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.samples.CreateSample(ctx, sample); err != nil {
		undos.rollback(ctx, s.logger)
		return nil, apperr.Wrap(apperr.KindInternal, "could not create sample", err)
	}

	s.feed.Publish(domain.ChangeEvent{
		Collection: domain.CollectionSamples,
		Type:       domain.ChangeCreate,
		DocumentID: sample.ID,
		TeamID:     sample.TeamID,
		Sample:     sample,
	})
	s.logger.Info("sample created", "sample_id", sample.ID, "user_id", userID)
	return sample, nil
}

// Get returns a sample readable by the caller: its owner, or any
// confirmed member of its team.
func (s Service) Get(ctx context.Context, userID, id string) (*domain.Sample, error) {
	sample, err := s.samples.GetSampleByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "sample not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not load sample", err)
	}
	if sample.UserID != userID {
		if sample.TeamID == "" {
			return nil, apperr.New(apperr.KindForbidden, "you do not have access to this sample")
		}
		member, err := s.members.GetMembership(ctx, sample.TeamID, userID)
		if err != nil || !member.Confirmed {
			return nil, apperr.New(apperr.KindForbidden, "you do not have access to this sample")
		}
	}
	return sample, nil
}

// ListMine returns the caller's samples.
func (s Service) ListMine(ctx context.Context, userID string) ([]domain.Sample, error) {
	samples, err := s.samples.ListSamplesByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list samples", err)
	}
	return samples, nil
}

// ListByTeam returns samples scoped to a team the caller belongs to.
func (s Service) ListByTeam(ctx context.Context, userID, teamID string) ([]domain.Sample, error) {
	member, err := s.members.GetMembership(ctx, teamID, userID)
	if err != nil || !member.Confirmed {
		return nil, apperr.New(apperr.KindForbidden, "you are not a member of this team")
	}
	samples, err := s.samples.ListSamplesByTeam(ctx, teamID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list samples", err)
	}
	return samples, nil
}

// UpdateInput carries a sample edit. A non-nil Image replaces the asset;
// ClearImage removes it.
type UpdateInput struct {
	Name        string
	Description string
	Image       *storage.ImageUpload
	ClearImage  bool
}

// Update replaces a sample's fields; only the owning user may edit. A
// replaced or cleared image asset is deleted after the record write.
func (s Service) Update(ctx context.Context, userID, id string, input UpdateInput) (*domain.Sample, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateSampleInput(input.Name, input.Description); err != nil {
		return nil, err
	}
	sample, err := s.samples.GetSampleByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "sample not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "could not load sample", err)
	}
	if sample.UserID != userID {
		return nil, apperr.New(apperr.KindForbidden, "only the owner can edit this sample")
	}

	var undos undoStack
	previousImage := sample.ImageID
	imageID := sample.ImageID
	if input.Image != nil {
		if err := storage.ValidateImage(input.Image.Filename, input.Image.Size); err != nil {
			return nil, apperr.New(apperr.KindInvalid, err.Error())
		}
		newID := uuid.NewString()
		if err := s.images.Upload(ctx, s.cfg.SampleBucket, newID, input.Image.Data, input.Image.Size, input.Image.ContentType); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "could not upload image", err)
		}
		undos.add("delete uploaded image", func(ctx context.Context) error {
			return s.images.Delete(ctx, s.cfg.SampleBucket, newID)
		})
		imageID = newID
	} else if input.ClearImage {
		imageID = ""
	}

	sample.Name = input.Name
	sample.Description = input.Description
	sample.ImageID = imageID
	sample.UpdatedAt = time.Now().UTC()
	if err := s.samples.UpdateSample(ctx, sample); err != nil {
		undos.rollback(ctx, s.logger)
		return nil, apperr.Wrap(apperr.KindInternal, "could not update sample", err)
	}

	// the record no longer references the old asset; drop it
	if previousImage != "" && previousImage != imageID {
		if err := s.images.Delete(ctx, s.cfg.SampleBucket, previousImage); err != nil {
			s.logger.Warn("orphaned sample image", "asset_id", previousImage, "error", err)
		}
	}

	s.feed.Publish(domain.ChangeEvent{
		Collection: domain.CollectionSamples,
		Type:       domain.ChangeUpdate,
		DocumentID: sample.ID,
		TeamID:     sample.TeamID,
		Sample:     sample,
	})
	return sample, nil
}

// Delete removes a sample and then its image asset; only the owner may
// delete.
func (s Service) Delete(ctx context.Context, userID, id string) error {
	sample, err := s.samples.GetSampleByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "sample not found")
		}
		return apperr.Wrap(apperr.KindInternal, "could not load sample", err)
	}
	if sample.UserID != userID {
		return apperr.New(apperr.KindForbidden, "only the owner can delete this sample")
	}
	if err := s.samples.DeleteSample(ctx, id); err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not delete sample", err)
	}
	if sample.ImageID != "" {
		if err := s.images.Delete(ctx, s.cfg.SampleBucket, sample.ImageID); err != nil {
			s.logger.Warn("orphaned sample image", "asset_id", sample.ImageID, "error", err)
		}
	}

	s.feed.Publish(domain.ChangeEvent{
		Collection: domain.CollectionSamples,
		Type:       domain.ChangeDelete,
		DocumentID: id,
		TeamID:     sample.TeamID,
	})
	s.logger.Info("sample deleted", "sample_id", id, "user_id", userID)
	return nil
}

// ImageURL resolves a sample image asset to a fetchable URL.
func (s Service) ImageURL(ctx context.Context, imageID string) (string, error) {
	if imageID == "" {
		return "", apperr.New(apperr.KindNotFound, "image not found")
	}
	url, err := s.images.URL(ctx, s.cfg.SampleBucket, imageID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "could not resolve image", err)
	}
	return url, nil
}
