package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
)

// MediaService manages artist and provider portfolios.
type MediaService struct {
	Media *repository.MediaRepo
}

// Add attaches a media item by URL to the owner's portfolio.
func (s *MediaService) Add(ctx context.Context, ownerID uint64, role string, m model.Media) (model.Media, error) {
	if !model.IsBookable(role) {
		return model.Media{}, ErrRoleNotAllowed
	}
	m.Kind = strings.ToUpper(strings.TrimSpace(m.Kind))
	switch m.Kind {
	case model.MediaImage, model.MediaVideo, model.MediaAudio:
	default:
		return model.Media{}, invalid("kind must be IMAGE, VIDEO or AUDIO")
	}
	m.URL = strings.TrimSpace(m.URL)
	u, err := url.Parse(m.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.Media{}, invalid("url must be an absolute http(s) URL")
	}
	m.Caption = strings.TrimSpace(m.Caption)
	if len(m.Caption) > 500 {
		return model.Media{}, invalid("caption is too long")
	}
	n, err := s.Media.CountByOwner(ctx, ownerID)
	if err != nil {
		return model.Media{}, err
	}
	if n >= model.MaxMediaPerProfile {
		return model.Media{}, ErrMediaLimit
	}
	m.OwnerID = ownerID
	m.IsHidden = false
	if err := s.Media.Create(ctx, &m); err != nil {
		return model.Media{}, err
	}
	return m, nil
}
