package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests whose resource type is listed. Types are
// matched singular or plural: "image" and "images" both block images.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	set := blockSet(types)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(set, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		set[strings.TrimSuffix(t, "s")] = true
	}
	return set
}

func shouldBlock(set map[string]bool, resType string) bool {
	return set[strings.TrimSuffix(strings.ToLower(resType), "s")]
}
