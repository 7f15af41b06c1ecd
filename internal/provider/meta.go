package provider

import (
	"context"

	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
	"transitstore.org/transitdb"
)

// Meta resource tags every family exposes.
const (
	TagMetaVersion       resource.Tag = "meta_version"
	TagMetaLabel         resource.Tag = "meta_label"
	TagMetaDeployed      resource.Tag = "meta_deployed"
	TagMetaSetupRequired resource.Tag = "meta_setuprequired"
)

func metaEntries(store *transitdb.Store) []planner.Entry {
	single := func(tag resource.Tag, pattern, column string, value func(ctx context.Context) (any, error)) planner.Entry {
		return planner.Entry{
			Tag:      tag,
			Patterns: []string{pattern},
			Type:     planner.ItemType("meta"),
			Compute: func(ctx context.Context, _ planner.OpenFunc, m resource.Match) (*planner.ResultSet, error) {
				v, err := value(ctx)
				if err != nil {
					return nil, err
				}
				return planner.NewResultSet(m.URI, tag, []string{column}, []any{v}), nil
			},
		}
	}

	return []planner.Entry{
		single(TagMetaVersion, "meta/version", "version", func(context.Context) (any, error) {
			return int64(store.Version()), nil
		}),
		single(TagMetaLabel, "meta/label", "label", func(context.Context) (any, error) {
			return store.Label(), nil
		}),
		single(TagMetaDeployed, "meta/deployed", "deployed", func(context.Context) (any, error) {
			return store.Deployed(), nil
		}),
		single(TagMetaSetupRequired, "meta/setuprequired", "setup_required", func(ctx context.Context) (any, error) {
			return store.SetupRequired(ctx)
		}),
	}
}
