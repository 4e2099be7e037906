package directory

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/types"
)

// CategoryAll is the reserved pseudo-category at index 0. It matches
// every channel and can never be renamed.
const CategoryAll = "全部"

// DefaultCategories seeds the category collection on first start.
var DefaultCategories = []string{CategoryAll, "科技", "生活", "娱乐", "教育", "其他"}

const maxCategoryNameLen = 10

// EnsureDefaultCategories seeds the default category set when the
// collection is empty. Safe to call on every startup.
func (d *Directory) EnsureDefaultCategories(ctx context.Context) error {
	docs, err := d.gw.List(ctx, gateway.CollectionCategories, nil, nil)
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		return nil
	}

	for i, name := range DefaultCategories {
		cat := types.Category{
			Id:        fmt.Sprintf("category-%d", i),
			Name:      name,
			Order:     i,
			IsDefault: i == 0,
		}
		if _, err := d.gw.Create(ctx, gateway.CollectionCategories, cat, cat.Id); err != nil {
			return err
		}
	}

	d.log.Printf("seeded %d default categories", len(DefaultCategories))
	return nil
}

// Categories returns the category set in display order.
func (d *Directory) Categories(ctx context.Context) ([]types.Category, error) {
	docs, err := d.gw.List(ctx, gateway.CollectionCategories, nil,
		&gateway.OrderBy{Field: "order"})
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[types.Category](docs)
}

// CreateCategories returns the categories a channel can be tagged
// with, which excludes the reserved all-channels entry.
func (d *Directory) CreateCategories(ctx context.Context) ([]types.Category, error) {
	cats, err := d.Categories(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.Category, 0, len(cats))
	for _, c := range cats {
		if c.Order == 0 {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateCategoryName renames the category at index and cascades the
// rename to every channel tagged with the old name. Categories are
// denormalized strings on channels, so the cascade is a batch update,
// not a pointer swap. Admin only; index 0 is immutable.
func (d *Directory) UpdateCategoryName(ctx context.Context, index int, newName string, isPrivileged bool) error {
	if !isPrivileged {
		return types.Forbidden("category rename requires an admin")
	}
	if index == 0 {
		return types.ImmutableCategory("category %q cannot be renamed", CategoryAll)
	}
	if newName == "" {
		return types.InvalidName("category name cannot be empty")
	}
	if utf8.RuneCountInString(newName) > maxCategoryNameLen {
		return types.InvalidName("category name exceeds %d characters", maxCategoryNameLen)
	}

	cats, err := d.Categories(ctx)
	if err != nil {
		return err
	}

	var target *types.Category
	for i := range cats {
		if cats[i].Order == index {
			target = &cats[i]
			continue
		}
		if cats[i].Name == newName {
			return types.InvalidName("category %q already exists", newName)
		}
	}
	if target == nil {
		return types.NotFound("no category at index %d", index)
	}

	oldName := target.Name
	if oldName == newName {
		return nil
	}

	if err := d.gw.Update(ctx, gateway.CollectionCategories, target.Id, map[string]any{
		"name": newName,
	}); err != nil {
		return err
	}

	tagged, err := d.gw.List(ctx, gateway.CollectionChannels, []gateway.Filter{
		gateway.Where("category", gateway.OpEq, oldName),
	}, nil)
	if err != nil {
		return err
	}
	for _, doc := range tagged {
		ch, err := gateway.Decode[types.Channel](doc)
		if err != nil {
			return err
		}
		if err := d.gw.Update(ctx, gateway.CollectionChannels, ch.Id, map[string]any{
			"category": newName,
		}); err != nil {
			return err
		}
	}

	d.log.Printf("renamed category %q to %q across %d channel(s)", oldName, newName, len(tagged))
	return nil
}
