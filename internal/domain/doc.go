// Package domain holds the entities exchanged with the backend and the view clients:
// profiles, posts, follow edges, place details, and the pure rules over them
// (tag and username normalization, visibility, search merging).
package domain
