package rodsession

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/sumire/autopost/internal/automation"
)

// page implements automation.Page for one tab.
type page struct {
	p *rod.Page
}

func (pg page) Navigate(ctx context.Context, url string) error {
	p := pg.p.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

func (pg page) URL(ctx context.Context) (string, error) {
	info, err := pg.p.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

func (pg page) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := pg.p.Context(ctx).Has(selector)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return has, nil
}

func (pg page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := pg.p.Context(tctx).Element(selector); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (pg page) Count(ctx context.Context, selector string) (int, error) {
	els, err := pg.p.Context(ctx).Elements(selector)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", selector, err)
	}
	return len(els), nil
}

func (pg page) Click(ctx context.Context, selector string) error {
	el, err := find(pg.p.Context(ctx), selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (pg page) Fill(ctx context.Context, selector, value string) error {
	el, err := find(pg.p.Context(ctx), selector)
	if err != nil {
		return err
	}
	if _, err := el.Eval(`function () { this.value = "" }`); err != nil {
		return fmt.Errorf("clear %s: %w", selector, err)
	}
	if value == "" {
		return nil
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input %s: %w", selector, err)
	}
	return nil
}

func (pg page) SetFiles(ctx context.Context, selector string, paths []string) error {
	el, err := find(pg.p.Context(ctx), selector)
	if err != nil {
		return err
	}
	if err := el.SetFiles(paths); err != nil {
		return fmt.Errorf("set files on %s: %w", selector, err)
	}
	return nil
}

func (pg page) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	el, err := find(pg.p.Context(ctx), selector)
	if err != nil {
		return nil, err
	}
	img, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", selector, err)
	}
	return img, nil
}

func (pg page) Links(ctx context.Context, selector string) ([]automation.Link, error) {
	els, err := pg.p.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	links := make([]automation.Link, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		href, err := el.Attribute("href")
		if err != nil || href == nil {
			continue
		}
		links = append(links, automation.Link{Text: text, Href: *href})
	}
	return links, nil
}

// find looks the element up once instead of waiting for it.
func find(p *rod.Page, selector string) (*rod.Element, error) {
	has, el, err := p.Has(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	if !has {
		return nil, fmt.Errorf("%s not found", selector)
	}
	return el, nil
}
