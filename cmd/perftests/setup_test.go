package perftests

import (
	"fmt"
	"time"

	bidding "auction-backend/internal/biddingService"
	model "auction-backend/internal/models"
	"auction-backend/internal/repository"
)

// newBenchService seeds numListings open listings starting at startingPrice
// and numUsers registered bidders named user_0..user_{n-1}.
func newBenchService(numListings, numUsers int, startingPrice float64) (*repository.MemoryRepo, *bidding.BiddingService) {
	repo := repository.NewMemoryRepo()
	now := time.Now().UTC()
	for i := 0; i < numListings; i++ {
		repo.AddListing(model.Listing{
			ListingID:     listingID(i),
			Name:          fmt.Sprintf("title_%d", i),
			Description:   "Load test listing",
			StartingPrice: startingPrice,
			CurrentPrice:  startingPrice,
			EndTime:       now.Add(24 * time.Hour),
			Status:        model.ListingActive,
			SellerID:      "seller",
			CreatedAt:     now,
		})
	}
	for i := 0; i < numUsers; i++ {
		repo.AddUser(model.User{
			UserID:   userID(i),
			Username: userID(i),
			Email:    userID(i) + "@example.com",
			Role:     model.RoleUser,
		})
	}
	return repo, bidding.NewBiddingService(repo)
}

func listingID(i int) string { return fmt.Sprintf("item_%d", i) }

func userID(i int) string { return fmt.Sprintf("user_%d", i) }
