// Package presenter delivers dispenser projections to user interfaces and
// archives them in blob storage.
package presenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"

	"chemcore/internal/blob"
	"chemcore/internal/core"
	"chemcore/pkg/domain"
)

const (
	defaultPrefix   = "projections"
	contentTypeJSON = "application/json"
	revisionDigits  = 20
)

// StreamPresenter writes each projection as one JSON line.
type StreamPresenter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStreamPresenter returns a presenter writing to w.
func NewStreamPresenter(w io.Writer) *StreamPresenter {
	return &StreamPresenter{enc: json.NewEncoder(w)}
}

// Present encodes the projection.
func (p *StreamPresenter) Present(_ context.Context, projection domain.Projection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(projection)
}

// BlobPresenter archives every projection revision as a JSON object keyed by
// owner and zero-padded revision so listing order matches revision order.
type BlobPresenter struct {
	store  blob.Store
	prefix string
}

// NewBlobPresenter archives into store under prefix. An empty prefix uses "projections".
func NewBlobPresenter(store blob.Store, prefix string) (*BlobPresenter, error) {
	if store == nil {
		return nil, errors.New("blob store required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &BlobPresenter{store: store, prefix: prefix}, nil
}

// Key returns the object key for one projection revision.
func (p *BlobPresenter) Key(owner domain.ContainerHandle, revision uint64) string {
	rev := strconv.FormatUint(revision, 10)
	if pad := revisionDigits - len(rev); pad > 0 {
		rev = strings.Repeat("0", pad) + rev
	}
	return path.Join(p.prefix, string(owner), rev+".json")
}

// Present writes the projection. Archiving a revision twice fails with blob.ErrExists.
func (p *BlobPresenter) Present(ctx context.Context, projection domain.Projection) error {
	payload, err := json.Marshal(projection)
	if err != nil {
		return fmt.Errorf("encode projection: %w", err)
	}
	key := p.Key(projection.Owner, projection.Revision)
	_, err = p.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentTypeJSON,
		Metadata: map[string]string{
			"owner":    string(projection.Owner),
			"revision": strconv.FormatUint(projection.Revision, 10),
			"mode":     projection.Mode.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("archive projection %s: %w", key, err)
	}
	return nil
}

// LatestRevision returns the highest archived revision for owner, 0 when none.
func (p *BlobPresenter) LatestRevision(ctx context.Context, owner domain.ContainerHandle) (uint64, error) {
	infos, err := p.History(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("list projections for %s: %w", owner, err)
	}
	var latest uint64
	for _, info := range infos {
		name := strings.TrimSuffix(path.Base(info.Key), ".json")
		rev, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		if rev > latest {
			latest = rev
		}
	}
	return latest, nil
}

// History returns the archived revisions for owner in revision order.
func (p *BlobPresenter) History(ctx context.Context, owner domain.ContainerHandle) ([]blob.Info, error) {
	return p.store.List(ctx, path.Join(p.prefix, string(owner))+"/")
}

// Latest loads the most recent archived projection for owner.
func (p *BlobPresenter) Latest(ctx context.Context, owner domain.ContainerHandle) (domain.Projection, error) {
	infos, err := p.History(ctx, owner)
	if err != nil {
		return domain.Projection{}, err
	}
	if len(infos) == 0 {
		return domain.Projection{}, fmt.Errorf("%w: no projections for %s", blob.ErrNotFound, owner)
	}
	_, body, err := p.store.Get(ctx, infos[len(infos)-1].Key)
	if err != nil {
		return domain.Projection{}, err
	}
	defer func() { _ = body.Close() }()
	var projection domain.Projection
	if err := json.NewDecoder(body).Decode(&projection); err != nil {
		return domain.Projection{}, fmt.Errorf("decode projection: %w", err)
	}
	return projection, nil
}

// Fanout presents to every presenter and joins their errors. Its
// LatestRevision is the highest reported by any member.
func Fanout(presenters ...core.Presenter) core.Presenter {
	targets := make(fanout, 0, len(presenters))
	for _, p := range presenters {
		if p != nil {
			targets = append(targets, p)
		}
	}
	return targets
}

type fanout []core.Presenter

func (f fanout) Present(ctx context.Context, projection domain.Projection) error {
	var errs []error
	for _, p := range f {
		if err := p.Present(ctx, projection); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) LatestRevision(ctx context.Context, owner domain.ContainerHandle) (uint64, error) {
	var latest uint64
	for _, p := range f {
		src, ok := p.(core.RevisionSource)
		if !ok {
			continue
		}
		rev, err := src.LatestRevision(ctx, owner)
		if err != nil {
			return 0, err
		}
		latest = max(latest, rev)
	}
	return latest, nil
}
