package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dmsetl/internal/logger"
)

// Resolver loads configuration documents from a clients root directory.
type Resolver struct {
	Root string
	Log  logger.Logger
}

// ReportRef is one resolved (DMS, report) pair.
//
// Spec is empty when the DMS document or report entry is missing; callers skip
// such reports.
type ReportRef struct {
	DMS  string
	Name string
	Spec ReportSpec
}

// Resolution lists the reports a branch must ingest, in first-seen order.
type Resolution struct {
	Client  string
	Branch  string
	Reports []ReportRef
}

// Names returns the resolved report names in order.
func (r Resolution) Names() []string {
	out := make([]string, len(r.Reports))
	for i, ref := range r.Reports {
		out[i] = ref.Name
	}
	return out
}

// Lookup returns the ref for a report name.
func (r Resolution) Lookup(name string) (ReportRef, bool) {
	for _, ref := range r.Reports {
		if ref.Name == name {
			return ref, true
		}
	}
	return ReportRef{}, false
}

func (r *Resolver) log() logger.Logger {
	if r.Log == nil {
		return logger.NewNop()
	}
	return r.Log
}

// ClientPath returns the registration document path for a client.
func (r *Resolver) ClientPath(clientID string) string {
	return filepath.Join(r.Root, clientID, "Config", "config.json")
}

// DMSPath returns the schema document path for a DMS.
func (r *Resolver) DMSPath(dms string) string {
	return filepath.Join(r.Root, "dms", dms+".json")
}

// LoadClient reads and checks a client registration document.
//
// Errors:
//   - ErrConfigNotFound when the document is absent.
//   - ErrConfigInvalid on malformed JSON or a duplicated branch code.
func (r *Resolver) LoadClient(clientID string) (ClientRegistration, error) {
	var reg ClientRegistration
	path := r.ClientPath(clientID)

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return reg, fmt.Errorf("%w: client %s registration %s", ErrConfigNotFound, clientID, path)
		}
		return reg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &reg); err != nil {
		return reg, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}

	seen := make(map[string]bool, len(reg.Branches))
	for _, br := range reg.Branches {
		code := normalizeBranch(br.Code)
		if seen[code] {
			return reg, fmt.Errorf("%w: %s: duplicate branch code %q", ErrConfigInvalid, path, br.Code)
		}
		seen[code] = true
	}
	return reg, nil
}

// LoadDMS reads one DMS schema document in canonical shape.
//
// Errors:
//   - ErrConfigNotFound when the document is absent.
//   - ErrConfigInvalid on malformed JSON or a legacy-shaped document.
func (r *Resolver) LoadDMS(dms string) (DmsSchema, error) {
	var s DmsSchema
	path := r.DMSPath(dms)

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, fmt.Errorf("%w: dms %s schema %s", ErrConfigNotFound, dms, path)
		}
		return s, fmt.Errorf("read %s: %w", path, err)
	}
	s, err = DecodeDmsSchema(b)
	if err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// DecodeDmsSchema decodes a canonical schema document.
func DecodeDmsSchema(b []byte) (DmsSchema, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return DmsSchema{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if _, legacy := probe[legacyKey]; legacy {
		return DmsSchema{}, fmt.Errorf("%w: legacy %q shape; run `dmsetl migrate`", ErrConfigInvalid, legacyKey)
	}
	var s DmsSchema
	if err := json.Unmarshal(b, &s); err != nil {
		return DmsSchema{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return s, nil
}

// Resolve lists the reports registered for one branch of a client, each with
// its ReportSpec.
//
// Edge cases:
//   - (DMS, report) pairs keep first-seen order; repeats are dropped.
//   - Each DMS document is read once per call.
//   - A missing DMS document, malformed DMS document or missing report entry
//     yields an empty spec and a warning. Only the client document is fatal.
//
// Errors:
//   - ErrConfigNotFound for a missing client document or unregistered branch.
//   - ErrConfigInvalid from LoadClient.
func (r *Resolver) Resolve(ctx context.Context, clientID, branch string) (Resolution, error) {
	res := Resolution{Client: clientID, Branch: branch}

	reg, err := r.LoadClient(clientID)
	if err != nil {
		return res, err
	}

	var br *Branch
	for i := range reg.Branches {
		if normalizeBranch(reg.Branches[i].Code) == normalizeBranch(branch) {
			br = &reg.Branches[i]
			break
		}
	}
	if br == nil {
		return res, fmt.Errorf("%w: client %s has no branch %q", ErrConfigNotFound, clientID, branch)
	}

	log := r.log().With(logger.String("client", clientID), logger.String("branch", branch))
	cache := map[string]*DmsSchema{}
	seen := map[string]bool{}

	for _, d := range br.DMS {
		for _, name := range d.Reports {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			key := d.Name + "\x00" + name
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true

			schema, ok := cache[d.Name]
			if !ok {
				s, err := r.LoadDMS(d.Name)
				if err != nil {
					log.Warn("dms schema unavailable; its reports will be skipped",
						logger.String("dms", d.Name), logger.Err(err))
					schema = nil
				} else {
					schema = &s
				}
				cache[d.Name] = schema
			}

			ref := ReportRef{DMS: d.Name, Name: name}
			if schema != nil {
				spec, found := schema.Reports[name]
				if !found {
					log.Warn("report not declared in dms schema",
						logger.String("dms", d.Name), logger.String("report", name))
				}
				ref.Spec = spec
			}
			if ref.Spec.Empty() {
				log.Warn("report has no expected columns", logger.String("report", name))
			}
			res.Reports = append(res.Reports, ref)
		}
	}
	return res, nil
}

func normalizeBranch(code string) string {
	c := strings.TrimLeft(strings.TrimSpace(code), "0")
	if c == "" {
		return "0"
	}
	return c
}
