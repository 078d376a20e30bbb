package storage

import "chatreel/internal/ports"

// Provider is the artifact store shared by the API and the worker.
type Provider = ports.StorageProvider

// URLSigner is implemented by providers with native signed URLs.
type URLSigner = ports.URLSigner
