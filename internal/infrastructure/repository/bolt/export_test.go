package bolt

import "go.etcd.io/bbolt"

// PutRawJob stores data under the job id without encoding it.
func (s *Store) PutRawJob(id string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).Put([]byte(id), data)
	})
}
