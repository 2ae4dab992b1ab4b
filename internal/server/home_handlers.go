package server

import (
	"sort"

	"github.com/gofiber/fiber/v2"
)

// Home handles GET /. Anonymous visitors get the landing page; members get
// the feed of their own and followed users' messages.
func (s *Server) Home(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil {
		return s.render(c, fiber.StatusOK, tmplHomeAnon, nil)
	}

	feed, err := s.messageService.Feed(c.UserContext(), user.ID)
	if err != nil {
		return s.handleServiceError(c, err)
	}
	liked, err := s.messageService.LikedIDs(c.UserContext(), user.ID, feed)
	if err != nil {
		return s.handleServiceError(c, err)
	}

	likedIDs := make([]uint, 0, len(liked))
	for id := range liked {
		likedIDs = append(likedIDs, id)
	}
	sort.Slice(likedIDs, func(i, j int) bool { return likedIDs[i] < likedIDs[j] })

	return s.render(c, fiber.StatusOK, tmplHome, fiber.Map{
		"messages":          feed,
		"liked_message_ids": likedIDs,
	})
}
